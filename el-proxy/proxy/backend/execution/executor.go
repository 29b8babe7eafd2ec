package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/ethereum/go-ethereum/params"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
)

// Result of a call on verified state.
type Result struct {
	ReturnData []byte
	UsedGas    uint64
	// Rounds is the number of executions it took to verify all the state the call touched.
	Rounds int
}

// Call runs args on the verified state at header, and returns the return data.
// getHash serves BLOCKHASH, it should only return trusted hashes.
func (b *Builder) Call(ctx context.Context, header *types.Header, args *ptypes.TransactionArgs, getHash vm.GetHashFunc) (*Result, error) {
	return b.run(ctx, header, args, getHash, false)
}

// EstimateGas runs args once on the verified state at header, and returns the gas it used.
// The fees default to the base fee of the block, and the sender is credited to pay for them.
func (b *Builder) EstimateGas(ctx context.Context, header *types.Header, args *ptypes.TransactionArgs, getHash vm.GetHashFunc) (*Result, error) {
	return b.run(ctx, header, args, getHash, true)
}

func (b *Builder) run(ctx context.Context, header *types.Header, args *ptypes.TransactionArgs, getHash vm.GetHashFunc, estimate bool) (*Result, error) {
	snap, err := b.Build(ctx, header, args)
	if err != nil {
		return nil, err
	}
	for round := 1; ; round++ {
		res, touched, err := b.execute(snap, args, getHash, estimate)
		if err != nil {
			return nil, err
		}
		if !b.cfg.VerifyAccessList {
			return finish(res, round)
		}
		missing := snap.set.missing(touched)
		if missing.size() == 0 {
			return finish(res, round)
		}
		if round >= b.cfg.MaxAccessListRounds {
			return nil, ptypes.Integrity("access list", fmt.Errorf("execution still touches %d unverified entries after %d rounds", missing.size(), round))
		}
		if snap.set.size()+missing.size() > b.cfg.MaxAccessListEntries {
			return nil, ptypes.Integrity("access list", fmt.Errorf("execution touches more than %d entries", b.cfg.MaxAccessListEntries))
		}
		b.log.Debug("Execution touched unverified state, loading it", "round", round, "entries", missing.size())
		if err := b.load(ctx, snap, missing); err != nil {
			return nil, err
		}
	}
}

// execute runs the message once on a fresh state built from the snapshot,
// and returns the accounts and slots the execution accessed.
func (b *Builder) execute(snap *Snapshot, args *ptypes.TransactionArgs, getHash vm.GetHashFunc, estimate bool) (*core.ExecutionResult, types.AccessList, error) {
	header := snap.header
	sdb, err := snap.stateDB()
	if err != nil {
		return nil, nil, err
	}
	msg := newMessage(header, args, estimate)
	if estimate {
		if err := creditSender(sdb, msg.From, msg.GasLimit, msg.GasFeeCap, msg.Value); err != nil {
			return nil, nil, err
		}
	}

	blockCtx := newBlockContext(b.chain, header, getHash)
	rules := b.chain.Rules(blockCtx.BlockNumber, blockCtx.Random != nil, blockCtx.Time)
	excluded := make(map[common.Address]struct{})
	for _, addr := range vm.ActivePrecompiles(rules) {
		excluded[addr] = struct{}{}
	}
	tracer := logger.NewAccessListTracer(nil, excluded)
	evm := vm.NewEVM(blockCtx, sdb, b.chain, vm.Config{NoBaseFee: true, Tracer: tracer.Hooks()})
	evm.SetTxContext(core.NewEVMTxContext(msg))

	gp := new(core.GasPool).AddGas(math.MaxUint64)
	res, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, nil, &ptypes.ExecutionError{Err: err}
	}
	return res, tracer.AccessList(), nil
}

func finish(res *core.ExecutionResult, rounds int) (*Result, error) {
	if errors.Is(res.Err, vm.ErrExecutionReverted) {
		data := res.Revert()
		reason, _ := abi.UnpackRevert(data)
		return nil, &ptypes.ExecutionRevertedError{Reason: reason, Data: data}
	}
	if res.Err != nil {
		return nil, &ptypes.ExecutionError{Err: res.Err}
	}
	return &Result{ReturnData: res.ReturnData, UsedGas: res.UsedGas, Rounds: rounds}, nil
}

// newMessage builds the message of a read-only execution.
// Gas defaults to the block gas limit. Fees default to zero for calls, and to the base fee for estimates.
func newMessage(header *types.Header, args *ptypes.TransactionArgs, estimate bool) *core.Message {
	gas := header.GasLimit
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	baseFee := new(big.Int)
	if header.BaseFee != nil {
		baseFee.Set(header.BaseFee)
	}
	defaultFee := new(big.Int)
	if estimate {
		defaultFee.Set(baseFee)
	}
	var gasPrice, feeCap, tipCap *big.Int
	switch args.TxType() {
	case types.DynamicFeeTxType:
		feeCap, tipCap = defaultFee, new(big.Int)
		if args.MaxFeePerGas != nil {
			feeCap = new(big.Int).Set(args.MaxFeePerGas.ToInt())
		}
		if args.MaxPriorityFeePerGas != nil {
			tipCap = new(big.Int).Set(args.MaxPriorityFeePerGas.ToInt())
		}
		gasPrice = new(big.Int).Add(tipCap, baseFee)
		if gasPrice.Cmp(feeCap) > 0 {
			gasPrice.Set(feeCap)
		}
	default:
		gasPrice = defaultFee
		if args.GasPrice != nil {
			gasPrice = new(big.Int).Set(args.GasPrice.ToInt())
		}
		feeCap, tipCap = gasPrice, gasPrice
	}
	var accessList types.AccessList
	if args.AccessList != nil {
		accessList = *args.AccessList
	}
	var nonce uint64
	if args.Nonce != nil {
		nonce = uint64(*args.Nonce)
	}
	return &core.Message{
		From:             args.FromOrZero(),
		To:               args.To,
		Nonce:            nonce,
		Value:            args.ValueOrZero(),
		GasLimit:         gas,
		GasPrice:         gasPrice,
		GasFeeCap:        feeCap,
		GasTipCap:        tipCap,
		Data:             args.CallData(),
		AccessList:       accessList,
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}
}

func newBlockContext(chain *params.ChainConfig, header *types.Header, getHash vm.GetHashFunc) vm.BlockContext {
	ctx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     getHash,
		Coinbase:    header.Coinbase,
		BlockNumber: new(big.Int).Set(header.Number),
		Time:        header.Time,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int),
		BlobBaseFee: new(big.Int),
		GasLimit:    header.GasLimit,
	}
	if header.Difficulty != nil {
		ctx.Difficulty.Set(header.Difficulty)
	}
	if header.BaseFee != nil {
		ctx.BaseFee.Set(header.BaseFee)
	}
	if ctx.Difficulty.Sign() == 0 {
		random := header.MixDigest
		ctx.Random = &random
	}
	if header.ExcessBlobGas != nil && chain.IsCancun(header.Number, header.Time) {
		ctx.BlobBaseFee = eip4844.CalcBlobFee(chain, header)
	}
	return ctx
}
