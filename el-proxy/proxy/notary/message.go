package notary

import (
	"strconv"

	"github.com/google/uuid"
)

const (
	ActionSetUpNode  = "SetUpNode"
	ActionIndexBlock = "IndexBlock"
)

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SetupInfo describes this node in the first message it publishes.
type SetupInfo struct {
	Admin       string `toml:"admin" yaml:"admin" cli:"notary.setup.admin"`
	Network     string `toml:"network" yaml:"network" cli:"notary.setup.network"`
	Name        string `toml:"name" yaml:"name" cli:"notary.setup.name"`
	RPCEndpoint string `toml:"rpc-endpoint" yaml:"rpc-endpoint" cli:"notary.setup.rpc-endpoint"`
}

type Message struct {
	ID     uuid.UUID `json:"id"`
	Action string    `json:"action"`
	Tags   []Tag     `json:"tags"`
	Data   *Summary  `json:"data"`
}

// NewMessage wraps a summary. The setup message carries the node description in its tags.
func NewMessage(summary *Summary, setup *SetupInfo, chainID uint64) *Message {
	slot := ""
	if summary.Beacon != nil {
		slot = summary.Beacon.Slot
	}
	action := ActionIndexBlock
	if setup != nil {
		action = ActionSetUpNode
	}
	tags := []Tag{
		{Name: "Action", Value: action},
		{Name: "Slot", Value: slot},
		{Name: "BlockNumber", Value: summary.Execution.BlockNumber},
	}
	if setup != nil {
		tags = append(tags,
			Tag{Name: "Admin", Value: setup.Admin},
			Tag{Name: "Network", Value: setup.Network},
			Tag{Name: "ChainId", Value: strconv.FormatUint(chainID, 10)},
			Tag{Name: "RpcEndpoint", Value: setup.RPCEndpoint},
			Tag{Name: "Name", Value: setup.Name},
		)
	}
	return &Message{
		ID:     uuid.New(),
		Action: action,
		Tags:   tags,
		Data:   summary,
	}
}

// Tag returns the value of the named tag, or an empty string.
func (m *Message) Tag(name string) string {
	for _, t := range m.Tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}
