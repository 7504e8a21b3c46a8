// Package tool はエージェントが呼び出すツールのディスパッチテーブルを提供する。
// モデルが要求したツール名をキーに、登録済みのツールを明示的に実行する。
package tool

import (
	"context"
	"encoding/json"
)

// Tool はエージェントに公開される1つのツールを表す。
// DescriptionとInputSchemaはそのままモデルへ送られるため、
// モデルがツールの用途を判断できる記述にすること。
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Run         func(ctx context.Context, input json.RawMessage) (any, error)
}
