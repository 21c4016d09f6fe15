package backend

import (
	"net/http"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/web3"
)

// Placement 决定工具参数如何进入 HTTP 请求。
type Placement int

const (
	// PlaceNone 忽略剩余参数；POST 请求发送空对象。
	PlaceNone Placement = iota
	// PlaceQuery 将剩余参数编码为查询字符串。
	PlaceQuery
	// PlaceBody 将剩余参数编码为 JSON 请求体。
	PlaceBody
)

// Route 描述一个工具对应的后端接口。
type Route struct {
	Method string
	// Path 可以包含 {name} 形式的占位符，由同名参数填充。
	Path      string
	Placement Placement
	// Fields 非空时只转发列出的参数。
	Fields      []string
	ForceUpdate bool
	Validate    func(args map[string]any) error
}

// DefaultRoutes 返回事件 canister 的接口表。
func DefaultRoutes() map[tools.ID]Route {
	return map[tools.ID]Route{
		tools.CreateEvent:              {Method: http.MethodPost, Path: "/events", Placement: PlaceBody, ForceUpdate: true},
		tools.GetEvents:                {Method: http.MethodGet, Path: "/events", Placement: PlaceQuery, Fields: []string{"limit", "offset"}, ForceUpdate: true},
		tools.GetEventByID:             {Method: http.MethodGet, Path: "/events/{eventId}", ForceUpdate: true},
		tools.CountEvents:              {Method: http.MethodGet, Path: "/events/count", ForceUpdate: true},
		tools.CanisterAddress:          {Method: http.MethodGet, Path: "/canister-address", ForceUpdate: true},
		tools.AddressBalance:           {Method: http.MethodGet, Path: "/address-balance", Placement: PlaceQuery, Fields: []string{"address"}, ForceUpdate: true, Validate: validateEVMAddress},
		tools.Payment:                  {Method: http.MethodGet, Path: "/payment/{eventId}", ForceUpdate: true},
		tools.GetCurrentFeePercentiles: {Method: http.MethodPost, Path: "/get-current-fee-percentiles"},
		tools.GetBalance:               {Method: http.MethodPost, Path: "/get-balance", Placement: PlaceBody, Fields: []string{"address"}},
		tools.GetUTXOs:                 {Method: http.MethodPost, Path: "/get-utxos", Placement: PlaceBody, Fields: []string{"address"}},
		tools.GetP2PKHAddress:          {Method: http.MethodPost, Path: "/get-p2pkh-address"},
		tools.Send:                     {Method: http.MethodPost, Path: "/send", Placement: PlaceBody},
	}
}

func validateEVMAddress(args map[string]any) error {
	raw, _ := args["address"].(string)
	addr, err := web3.ParseAddress(raw)
	if err != nil {
		return err
	}
	args["address"] = addr.Hex()
	return nil
}
