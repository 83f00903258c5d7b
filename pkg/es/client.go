// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
	"shopchat-go/pkg/log"
)

var ESClient *elasticsearch.Client

// 对话内容使用标准分词器，韩语和英文都能做基本的全文匹配。
const entryMapping = `{
	"mappings": {
		"properties": {
			"entry_id": { "type": "keyword" },
			"user_id": { "type": "keyword" },
			"session_id": { "type": "keyword" },
			"role": { "type": "keyword" },
			"content": { "type": "text", "analyzer": "standard" },
			"message_type": { "type": "keyword" },
			"created_at": { "type": "date" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端并确保索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(entryMapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// EntryIndex 在单个索引上读写对话条目。
type EntryIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewEntryIndex 使用全局客户端创建 EntryIndex。
func NewEntryIndex(indexName string) *EntryIndex {
	return &EntryIndex{client: ESClient, index: indexName}
}

// IndexEntry 写入（或覆盖）一条对话条目。
func (x *EntryIndex) IndexEntry(ctx context.Context, doc model.EsEntryDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: doc.EntryID,
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引对话条目到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index entry")
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64               `json:"_score"`
			Source model.EsEntryDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// BuildSearchQuery 构造只在某个用户的条目中做全文匹配的查询体。
func BuildSearchQuery(userID, query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"content": map[string]interface{}{"query": query},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": userID},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"created_at": "desc"}},
	}
}

// Search 返回某个用户对话中与 query 匹配的条目。
func (x *EntryIndex) Search(ctx context.Context, userID, query string, size int) ([]model.SearchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildSearchQuery(userID, query, size)); err != nil {
		return nil, err
	}
	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]model.SearchHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, model.SearchHit{
			EntryID:   h.Source.EntryID,
			SessionID: h.Source.SessionID,
			Role:      h.Source.Role,
			Content:   h.Source.Content,
			CreatedAt: h.Source.CreatedAt,
			Score:     h.Score,
		})
	}
	return hits, nil
}
