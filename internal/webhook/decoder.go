package webhook

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PublicationEvent is the canonical triple extracted from a provider
// envelope.
type PublicationEvent struct {
	ContentAddress string
	AuthorAddress  string
	PublicationID  string
	SourceChannel  string
}

// PostPublished(address indexed author, string contentAddress, uint256 publicationId)
var (
	publishedTopic = crypto.Keccak256Hash([]byte("PostPublished(address,string,uint256)"))
	publishedArgs  = mustArguments()
)

func mustArguments() abi.Arguments {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "contentAddress", Type: stringType},
		{Name: "publicationId", Type: uint256Type},
	}
}

type rawLog struct {
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}

// alchemyEnvelope is the GraphQL-shaped delivery Alchemy sends: logs nested
// under event.data.block.
type alchemyEnvelope struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Event struct {
		Data struct {
			Block struct {
				Logs []rawLog `json:"logs"`
			} `json:"block"`
		} `json:"data"`
	} `json:"event"`
}

// quicknodeEnvelope is the QuickAlerts shape: an array of matched receipts,
// each carrying its logs.
type quicknodeEnvelope []struct {
	Logs []rawLog `json:"logs"`
}

// DecodeAlchemy parses an Alchemy delivery. ok is false when no log matches
// the publication event; unrelated logs are expected and not an error.
func DecodeAlchemy(body []byte) (PublicationEvent, bool, error) {
	var envelope alchemyEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PublicationEvent{}, false, fmt.Errorf("parse alchemy envelope: %w", err)
	}
	for _, entry := range envelope.Event.Data.Block.Logs {
		if event, ok := decodeLog(entry); ok {
			event.SourceChannel = "alchemy"
			return event, true, nil
		}
	}
	return PublicationEvent{}, false, nil
}

// DecodeQuickNode parses a QuickNode delivery.
func DecodeQuickNode(body []byte) (PublicationEvent, bool, error) {
	var envelope quicknodeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PublicationEvent{}, false, fmt.Errorf("parse quicknode envelope: %w", err)
	}
	for _, receipt := range envelope {
		for _, entry := range receipt.Logs {
			if event, ok := decodeLog(entry); ok {
				event.SourceChannel = "quicknode"
				return event, true, nil
			}
		}
	}
	return PublicationEvent{}, false, nil
}

func decodeLog(entry rawLog) (PublicationEvent, bool) {
	if len(entry.Topics) < 2 {
		return PublicationEvent{}, false
	}
	if !strings.EqualFold(entry.Topics[0], publishedTopic.Hex()) {
		return PublicationEvent{}, false
	}
	data, err := hexutil.Decode(entry.Data)
	if err != nil {
		return PublicationEvent{}, false
	}
	values, err := publishedArgs.Unpack(data)
	if err != nil || len(values) != 2 {
		return PublicationEvent{}, false
	}
	contentAddress, ok := values[0].(string)
	if !ok || contentAddress == "" {
		return PublicationEvent{}, false
	}
	publicationID, ok := values[1].(*big.Int)
	if !ok {
		return PublicationEvent{}, false
	}
	author := common.HexToAddress(entry.Topics[1])
	return PublicationEvent{
		ContentAddress: contentAddress,
		AuthorAddress:  strings.ToLower(author.Hex()),
		PublicationID:  publicationID.String(),
	}, true
}
