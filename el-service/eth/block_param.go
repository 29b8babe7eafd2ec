package eth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockTag is one of the named block parameters of the execution API.
type BlockTag string

const (
	Latest    BlockTag = "latest"
	Pending   BlockTag = "pending"
	Earliest  BlockTag = "earliest"
	Finalized BlockTag = "finalized"
	Safe      BlockTag = "safe"
)

var ErrInvalidBlockParam = errors.New("invalid block parameter")

// BlockParam is a block number or a block tag.
// It decodes from a tag string, a hex or decimal number string, or a JSON number.
type BlockParam struct {
	Tag    BlockTag
	Number uint64
}

func LatestBlock() BlockParam {
	return BlockParam{Tag: Latest}
}

func NumberBlock(n uint64) BlockParam {
	return BlockParam{Number: n}
}

// IsNumber reports whether the parameter is an explicit block number.
func (p BlockParam) IsNumber() bool {
	return p.Tag == ""
}

// IsLatest reports whether the parameter resolves to the tip.
func (p BlockParam) IsLatest() bool {
	return p.Tag == Latest
}

func (p BlockParam) String() string {
	if p.IsNumber() {
		return hexutil.EncodeUint64(p.Number)
	}
	return string(p.Tag)
}

func (p BlockParam) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParseBlockParam parses a tag, a 0x-prefixed hex number, or a decimal number.
func ParseBlockParam(s string) (BlockParam, error) {
	switch tag := BlockTag(strings.TrimSpace(s)); tag {
	case Latest, Pending, Earliest, Finalized, Safe:
		return BlockParam{Tag: tag}, nil
	case "":
		return BlockParam{}, fmt.Errorf("%w: empty", ErrInvalidBlockParam)
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := hexutil.DecodeUint64("0x" + s[2:])
		if err != nil {
			return BlockParam{}, fmt.Errorf("%w: %q: %w", ErrInvalidBlockParam, s, err)
		}
		return NumberBlock(n), nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return BlockParam{}, fmt.Errorf("%w: %q", ErrInvalidBlockParam, s)
	}
	return NumberBlock(n), nil
}

func (p *BlockParam) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidBlockParam, data)
		}
		*p = NumberBlock(n)
		return nil
	}
	out, err := ParseBlockParam(s)
	if err != nil {
		return err
	}
	*p = out
	return nil
}
