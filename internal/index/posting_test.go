package index

import (
	"reflect"
	"testing"
)

func list(ids ...string) PostingList {
	pl := make(PostingList, len(ids))
	for i, id := range ids {
		pl[i] = Posting{DocID: id, Frequency: 1, Positions: []int{0}}
	}
	return pl
}

func TestPostingListWith(t *testing.T) {
	pl := list("b", "d")

	got := pl.with(Posting{DocID: "c", Frequency: 2, Positions: []int{1, 5}})
	if want := []string{"b", "c", "d"}; !reflect.DeepEqual(got.DocIDs(), want) {
		t.Errorf("insert: DocIDs = %v, want %v", got.DocIDs(), want)
	}

	got = pl.with(Posting{DocID: "a", Frequency: 1, Positions: []int{0}})
	if want := []string{"a", "b", "d"}; !reflect.DeepEqual(got.DocIDs(), want) {
		t.Errorf("prepend: DocIDs = %v, want %v", got.DocIDs(), want)
	}

	got = pl.with(Posting{DocID: "b", Frequency: 7, Positions: []int{3}})
	if len(got) != 2 {
		t.Fatalf("replace grew the list: %v", got)
	}
	if p, _ := got.Get("b"); p.Frequency != 7 {
		t.Errorf("replace did not take: %+v", p)
	}

	// Receiver stays untouched.
	if want := []string{"b", "d"}; !reflect.DeepEqual(pl.DocIDs(), want) {
		t.Errorf("receiver mutated: %v", pl.DocIDs())
	}
}

func TestPostingListWithout(t *testing.T) {
	pl := list("a", "b", "c")

	got, removed := pl.without("b")
	if !removed {
		t.Fatal("expected removal")
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(got.DocIDs(), want) {
		t.Errorf("DocIDs = %v, want %v", got.DocIDs(), want)
	}

	got, removed = pl.without("zz")
	if removed {
		t.Error("removed an absent DocID")
	}
	if len(got) != 3 {
		t.Errorf("absent removal changed the list: %v", got.DocIDs())
	}

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(pl.DocIDs(), want) {
		t.Errorf("receiver mutated: %v", pl.DocIDs())
	}
}

func TestPostingListContains(t *testing.T) {
	pl := list("a", "c")
	if !pl.Contains("a") || !pl.Contains("c") {
		t.Error("missing present DocIDs")
	}
	if pl.Contains("b") {
		t.Error("found absent DocID")
	}
	var empty PostingList
	if empty.Contains("a") {
		t.Error("empty list claimed a DocID")
	}
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name  string
		lists []PostingList
		want  []string
	}{
		{"no lists", nil, nil},
		{"single list", []PostingList{list("a", "b")}, []string{"a", "b"}},
		{"common subset", []PostingList{list("a", "b", "c"), list("b", "c", "d")}, []string{"b", "c"}},
		{"disjoint", []PostingList{list("a"), list("b")}, nil},
		{"empty member", []PostingList{list("a", "b"), nil}, nil},
		{"three way", []PostingList{list("a", "b", "c", "d"), list("b", "d"), list("a", "b", "d", "e")}, []string{"b", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Intersect(tt.lists)
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Intersect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnion(t *testing.T) {
	got := Union([]PostingList{list("c", "d"), list("a", "c"), nil})
	if want := []string{"a", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Union = %v, want %v", got, want)
	}
	if got := Union(nil); len(got) != 0 {
		t.Errorf("Union(nil) = %v", got)
	}
}
