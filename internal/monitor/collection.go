package monitor

import (
	"indodax-monitor-bot/internal/models"
	"sort"
)

// Entry is one record together with the user who owns it.
type Entry[R any] struct {
	Owner  string
	Record R
}

// Collection flattens a stored collection into entries and back.
// Entries must come out in a stable order.
type Collection[T, R any] interface {
	Entries(T) []Entry[R]
	Build([]Entry[R]) T
}

// BookCollection adapts owner -> records maps. Owners are visited in sorted
// order and records in stored order. Owners left without records are dropped.
type BookCollection[M ~map[string][]R, R any] struct{}

func (BookCollection[M, R]) Entries(book M) []Entry[R] {
	owners := make([]string, 0, len(book))
	for owner := range book {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var entries []Entry[R]
	for _, owner := range owners {
		for _, rec := range book[owner] {
			entries = append(entries, Entry[R]{Owner: owner, Record: rec})
		}
	}
	return entries
}

func (BookCollection[M, R]) Build(entries []Entry[R]) M {
	book := make(M)
	for _, e := range entries {
		book[e.Owner] = append(book[e.Owner], e.Record)
	}
	return book
}

// StoplossCollection adapts the flat stop-loss list; the owner is the record's UserID.
type StoplossCollection struct{}

func (StoplossCollection) Entries(list models.StoplossList) []Entry[models.StoplossRecord] {
	entries := make([]Entry[models.StoplossRecord], 0, len(list))
	for _, rec := range list {
		entries = append(entries, Entry[models.StoplossRecord]{Owner: rec.UserID, Record: rec})
	}
	return entries
}

func (StoplossCollection) Build(entries []Entry[models.StoplossRecord]) models.StoplossList {
	list := make(models.StoplossList, 0, len(entries))
	for _, e := range entries {
		list = append(list, e.Record)
	}
	return list
}
