// Package model はドメインモデルを定義する。
package model

// Item はプロジェクトボード上の未分類のIssueを表す。
// フェッチ結果としてのみ生成され、永続化はしない。
type Item struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}
