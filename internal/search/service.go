package search

import (
	"context"
	"log"
)

// Index is the write side of the primary search backend.
type Index interface {
	Searcher
	IndexSection(rec SectionRecord) error
	IndexSections(records []SectionRecord) error
	DeleteSection(id string) error
}

// RecordLoader reads every indexable section from the system of record.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]SectionRecord, error)
}

// Fallback is the Postgres side of the service.
type Fallback interface {
	Searcher
	RecordLoader
}

// Service tries the index first and falls back to Postgres FTS.
type Service struct {
	index    Index
	fallback Fallback
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, fallback Fallback) *Service {
	return &Service{index: index, fallback: fallback}
}

func (s *Service) Search(q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSection indexes a saved section (fire-and-forget).
func (s *Service) IndexSection(rec SectionRecord) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.IndexSection(rec); err != nil {
			log.Printf("search: index section %s: %v", rec.ID, err)
		}
	}()
}

// DeleteSection removes a section from the index (fire-and-forget).
func (s *Service) DeleteSection(id string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.DeleteSection(id); err != nil {
			log.Printf("search: delete section %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every saved section into the index.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexReady() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.index.IndexSections(records); err != nil {
		log.Printf("search: reindex sections: %v", err)
	}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
