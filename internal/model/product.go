package model

// Product 是后端返回的商品卡片数据，原样透传，不在本地修改。
type Product struct {
	ID                   int64  `json:"id"`
	Title                string `json:"title"`
	Image                string `json:"image"`
	Link                 string `json:"link"`
	LPrice               int64  `json:"lprice"`
	HPrice               int64  `json:"hprice"`
	MallName             string `json:"mallName"`
	Brand                string `json:"brand"`
	Category1            string `json:"category1"`
	Category2            string `json:"category2"`
	ProductType          string `json:"productType"`
	Maker                string `json:"maker"`
	SearchCount          int64  `json:"searchCount"`
	LastSearchedAt       string `json:"lastSearchedAt"`
	PriceFormatted       string `json:"priceFormatted"`
	DiscountRate         string `json:"discountRate"`
	IsRecommended        bool   `json:"isRecommended"`
	RecommendationReason string `json:"recommendationReason,omitempty"`
}

// HasDiscount 最高价高于最低价时才显示划线价。
func (p Product) HasDiscount() bool {
	return p.HPrice > 0 && p.HPrice > p.LPrice
}
