package web3

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

var weiPerEther = big.NewInt(params.Ether)

// ParseAddress 校验 EVM 地址并返回 EIP-55 校验和格式。
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid EVM address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// ParseWei 解析十进制或 0x 前缀的 wei 数值。
func ParseWei(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty wei amount")
	}
	value, ok := new(big.Int).SetString(raw, 0)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return value, nil
}

// FormatEther 将 wei 精确换算为 ETH，并去掉多余的小数零。
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	text := new(big.Rat).SetFrac(wei, weiPerEther).FloatString(18)
	if strings.Contains(text, ".") {
		text = strings.TrimRight(text, "0")
		text = strings.TrimSuffix(text, ".")
	}
	return text
}

// WeiStringToEther 组合 ParseWei 与 FormatEther。
func WeiStringToEther(raw string) (string, error) {
	wei, err := ParseWei(raw)
	if err != nil {
		return "", err
	}
	return FormatEther(wei), nil
}
