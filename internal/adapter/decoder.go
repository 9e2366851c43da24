package adapter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/amm-analytics/internal/types"
)

// Event signatures (topic0)
var (
	TopicTransfer    = pairABI.Events["Transfer"].ID
	TopicSync        = pairABI.Events["Sync"].ID
	TopicMint        = pairABI.Events["Mint"].ID
	TopicBurn        = pairABI.Events["Burn"].ID
	TopicSwap        = pairABI.Events["Swap"].ID
	TopicPairCreated = factoryABI.Events["PairCreated"].ID
)

// PairTopics are the topic0 values of every pair event the engine consumes
func PairTopics() []common.Hash {
	return []common.Hash{TopicTransfer, TopicSync, TopicMint, TopicBurn, TopicSwap}
}

// BlockContext is the per-block data a raw log lacks
type BlockContext struct {
	Number    uint64
	Timestamp int64
	Senders   map[common.Hash]common.Address // tx hash -> originating account
}

// Decoder turns raw logs into engine events
type Decoder struct {
	factory common.Address
}

// NewDecoder creates a decoder accepting PairCreated only from factory
func NewDecoder(factory common.Address) *Decoder {
	return &Decoder{factory: factory}
}

// Decode returns the event carried by log, or nil for logs the engine does not consume
func (d *Decoder) Decode(log ethtypes.Log, block *BlockContext) (types.Event, error) {
	if len(log.Topics) == 0 || log.Removed {
		return nil, nil
	}

	ec := types.EventContext{
		Address:     log.Address,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		BlockNumber: log.BlockNumber,
	}
	if block != nil {
		ec.Timestamp = block.Timestamp
		ec.TxFrom = block.Senders[log.TxHash]
	}

	switch log.Topics[0] {
	case TopicPairCreated:
		if log.Address != d.factory {
			return nil, nil
		}
		return decodePairCreated(log, ec)
	case TopicTransfer:
		return decodeTransfer(log, ec)
	case TopicSync:
		return decodeSync(log, ec)
	case TopicMint:
		return decodeMint(log, ec)
	case TopicBurn:
		return decodeBurn(log, ec)
	case TopicSwap:
		return decodeSwap(log, ec)
	default:
		return nil, nil
	}
}

func decodePairCreated(log ethtypes.Log, ec types.EventContext) (types.Event, error) {
	values, err := unpack(factoryABI, "PairCreated", log, 3)
	if err != nil {
		return nil, err
	}
	pair, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: PairCreated pair is %T", ErrMalformedLog, values[0])
	}
	index, err := bigAt(values, 1, "PairCreated")
	if err != nil {
		return nil, err
	}
	return &types.PairCreated{
		EventContext: ec,
		Token0:       topicAddress(log.Topics[1]),
		Token1:       topicAddress(log.Topics[2]),
		Pair:         pair,
		Index:        index,
	}, nil
}

func decodeTransfer(log ethtypes.Log, ec types.EventContext) (types.Event, error) {
	values, err := unpack(pairABI, "Transfer", log, 3)
	if err != nil {
		return nil, err
	}
	value, err := bigAt(values, 0, "Transfer")
	if err != nil {
		return nil, err
	}
	return &types.Transfer{
		EventContext: ec,
		From:         topicAddress(log.Topics[1]),
		To:           topicAddress(log.Topics[2]),
		Value:        value,
	}, nil
}

func decodeSync(log ethtypes.Log, ec types.EventContext) (types.Event, error) {
	values, err := unpack(pairABI, "Sync", log, 1)
	if err != nil {
		return nil, err
	}
	ints, err := bigs(values, "Sync")
	if err != nil {
		return nil, err
	}
	return &types.Sync{EventContext: ec, Reserve0: ints[0], Reserve1: ints[1]}, nil
}

func decodeMint(log ethtypes.Log, ec types.EventContext) (types.Event, error) {
	values, err := unpack(pairABI, "Mint", log, 2)
	if err != nil {
		return nil, err
	}
	ints, err := bigs(values, "Mint")
	if err != nil {
		return nil, err
	}
	return &types.Mint{
		EventContext: ec,
		Sender:       topicAddress(log.Topics[1]),
		Amount0:      ints[0],
		Amount1:      ints[1],
	}, nil
}

func decodeBurn(log ethtypes.Log, ec types.EventContext) (types.Event, error) {
	values, err := unpack(pairABI, "Burn", log, 3)
	if err != nil {
		return nil, err
	}
	ints, err := bigs(values, "Burn")
	if err != nil {
		return nil, err
	}
	return &types.Burn{
		EventContext: ec,
		Sender:       topicAddress(log.Topics[1]),
		Amount0:      ints[0],
		Amount1:      ints[1],
		To:           topicAddress(log.Topics[2]),
	}, nil
}

func decodeSwap(log ethtypes.Log, ec types.EventContext) (types.Event, error) {
	values, err := unpack(pairABI, "Swap", log, 3)
	if err != nil {
		return nil, err
	}
	ints, err := bigs(values, "Swap")
	if err != nil {
		return nil, err
	}
	return &types.Swap{
		EventContext: ec,
		Sender:       topicAddress(log.Topics[1]),
		Amount0In:    ints[0],
		Amount1In:    ints[1],
		Amount0Out:   ints[2],
		Amount1Out:   ints[3],
		To:           topicAddress(log.Topics[2]),
	}, nil
}

// unpack checks the indexed topic count and decodes the non-indexed data
func unpack(contract abi.ABI, name string, log ethtypes.Log, topics int) ([]interface{}, error) {
	if len(log.Topics) != topics {
		return nil, fmt.Errorf("%w: %s has %d topics, want %d", ErrMalformedLog, name, len(log.Topics), topics)
	}
	values, err := contract.Unpack(name, log.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedLog, name, err)
	}
	return values, nil
}

func bigAt(values []interface{}, i int, name string) (*big.Int, error) {
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s field %d is %T", ErrMalformedLog, name, i, values[i])
	}
	return v, nil
}

func bigs(values []interface{}, name string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i := range values {
		v, err := bigAt(values, i, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}
