package service

import (
	"context"
	"errors"
	"strings"

	"shopchat-go/internal/model"
	"shopchat-go/pkg/log"
)

var ErrEmptyQuery = errors.New("search query is empty")

const defaultSearchSize = 20

// EntrySearcher 在全文索引中查找某个用户的条目。
type EntrySearcher interface {
	Search(ctx context.Context, userID, query string, size int) ([]model.SearchHit, error)
}

// SearchService 在用户自己的归档对话中做全文检索。
type SearchService interface {
	Search(ctx context.Context, userID, query string, size int) ([]model.SearchHit, error)
}

type searchService struct {
	searcher EntrySearcher
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(searcher EntrySearcher) SearchService {
	return &searchService{searcher: searcher}
}

func (s *searchService) Search(ctx context.Context, userID, query string, size int) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if size <= 0 || size > 100 {
		size = defaultSearchSize
	}
	hits, err := s.searcher.Search(ctx, userID, query, size)
	if err != nil {
		return nil, err
	}
	log.Infow("对话检索完成", "userId", userID, "query", query, "hits", len(hits))
	return hits, nil
}
