// Package proposal verifies block proposals received from a round's
// leader.
//
// Every transaction is classified and checked against the last
// committed state, and the per-transaction results are folded into an
// Accept or Reject verdict. Verification reads state and never writes
// it, so the same proposal over the same state always yields the same
// verdict.
package proposal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheSize is the number of classified transactions a
// Processor remembers.
const DefaultCacheSize = 4096

// Config configures a Processor. Zero values select defaults.
type Config struct {
	Logger *zap.Logger
	Tracer trace.Tracer
	// Registerer receives the processor's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
	// Decrypter opens queued wrappers to confirm undecryptable claims.
	// Nil uses encryption.NoKey.
	Decrypter encryption.Decrypter
	// Workers bounds parallel classification. Zero uses GOMAXPROCS.
	Workers int
	// CacheSize bounds the classification cache. Zero uses
	// DefaultCacheSize.
	CacheSize int
}

// Processor verifies proposals. It is safe for concurrent use.
type Processor struct {
	log     *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics
	dec     encryption.Decrypter
	workers int
	cache   *lru.Cache
}

// New builds a Processor.
func New(cfg Config) (*Processor, error) {
	p := &Processor{
		log:     cfg.Logger,
		tracer:  cfg.Tracer,
		dec:     cfg.Decrypter,
		workers: cfg.Workers,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/blockberries/cloak/proposal")
	}
	if p.dec == nil {
		p.dec = encryption.NoKey{}
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("proposal: classification cache: %w", err)
	}
	p.cache = cache
	if p.metrics, err = NewMetrics(cfg.Registerer); err != nil {
		return nil, fmt.Errorf("proposal: register metrics: %w", err)
	}
	return p, nil
}

// classified is the outcome of classifying one transaction. It is
// immutable once cached.
type classified struct {
	tx   transaction.TxType
	err  error
	hash types.Hash
}

// classify decodes every transaction in parallel. Results are in
// input order.
func (p *Processor) classify(ctx context.Context, txs []types.Tx) ([]classified, error) {
	out := make([]classified, len(txs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, tx := range txs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h := types.Hash(sha256.Sum256(tx))
			if c, ok := p.cache.Get(h); ok {
				out[i] = c.(classified)
				return nil
			}
			tt, err := transaction.Classify(tx)
			c := classified{tx: tt, err: err, hash: h}
			p.cache.Add(h, c)
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fold carries the state of one sequential pass over a proposal.
type fold struct {
	st         State
	lastHeight uint64
	queue      []transaction.WrapperTx
	cursor     int
	digests    int
}

func (p *Processor) checkTx(f *fold, c classified) (types.TxResult, error) {
	if c.err != nil {
		if errors.Is(c.err, transaction.ErrInvalidSignature) {
			return result(InvalidSig, c.err.Error()), nil
		}
		p.log.Debug("Couldn't deserialize transaction received in proposal", zap.Error(c.err))
		return result(InvalidTx, "The submitted transaction was not deserializable"), nil
	}

	switch tx := c.tx.(type) {
	case *transaction.RawTx:
		return result(InvalidTx, "Transaction rejected: Non-encrypted transactions are not supported"), nil

	case *transaction.ProtocolTx:
		if tx.Kind != transaction.ProtocolEthereumEvents {
			return result(InvalidTx, "Unsupported protocol transaction type"), nil
		}
		f.digests++
		res, err := VerifyDigest(f.st, f.lastHeight, tx.EthereumEvents, p.log)
		if err != nil {
			return res, err
		}
		p.metrics.observeDigest(ErrorCode(res.Code))
		return res, nil

	case *transaction.DecryptedTx:
		var res types.TxResult
		res, f.cursor = CheckDecrypted(f.queue, f.cursor, tx, p.dec)
		return res, nil

	case *transaction.WrapperTx:
		return CheckWrapper(f.st, tx, c.hash)

	default:
		return types.TxResult{}, fmt.Errorf("proposal: unhandled transaction type %T", tx)
	}
}

// process classifies txs and folds them in order. It returns one
// result per transaction and the number of vote-extension digests.
func (p *Processor) process(ctx context.Context, st State, txs []types.Tx) ([]types.TxResult, int, error) {
	cls, err := p.classify(ctx, txs)
	if err != nil {
		return nil, 0, err
	}
	f := &fold{st: st}
	if f.lastHeight, err = st.LastHeight(); err != nil {
		return nil, 0, fmt.Errorf("proposal: last height: %w", err)
	}
	if f.queue, err = st.TxQueue(); err != nil {
		return nil, 0, fmt.Errorf("proposal: tx queue: %w", err)
	}

	results := make([]types.TxResult, len(cls))
	for i, c := range cls {
		if results[i], err = p.checkTx(f, c); err != nil {
			return nil, 0, err
		}
	}
	return results, f.digests, nil
}

// ProcessProposal verifies a proposal against st. The verdict is
// Reject if the proposal does not carry exactly one vote-extension
// digest or if any transaction failed with an unrecoverable code.
// The verdict always holds every transaction's result.
//
// A returned error means st could not be read, or the pass was
// cancelled.
func (p *Processor) ProcessProposal(ctx context.Context, st State, req types.ReceivedProposal) (types.ProposalVerdict, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "ProcessProposal", trace.WithAttributes(
		attribute.Int64("height", int64(req.Height)),
		attribute.Int("n_txs", len(req.Txs)),
	))
	defer span.End()

	proposal := []zap.Field{
		zap.String("proposer", req.Proposer.String()),
		zap.Uint64("height", req.Height),
		zap.String("hash", hex.EncodeToString(req.Hash[:])),
	}
	p.log.Info("Received block proposal", append(proposal,
		zap.Time("time", req.Time.ToTime()),
		zap.Int("n_txs", len(req.Txs)),
	)...)

	results, digests, err := p.process(ctx, st, req.Txs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return types.ProposalVerdict{}, err
	}

	invalidDigests := digests != 1
	if invalidDigests {
		p.log.Warn("Found invalid number of Ethereum events vote extension digests, "+
			"proposed block will be rejected", append(proposal, zap.Int("eth_ev_digest_num", digests))...)
	}

	invalidTxs := false
	for _, r := range results {
		code, err := ParseErrorCode(r.Code)
		if err != nil {
			panic(cloak.NewHaltError(req.Height, err.Error()))
		}
		p.metrics.observeResult(code)
		if !code.IsRecoverable() {
			invalidTxs = true
		}
	}
	if invalidTxs {
		p.log.Warn("Found invalid transactions, proposed block will be rejected", proposal...)
	}

	status := types.ProposalAccept
	if invalidDigests || invalidTxs {
		status = types.ProposalReject
	}
	p.metrics.proposals.WithLabelValues(status.String()).Inc()
	p.metrics.duration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("status", status.String()))
	p.log.Info("Processed block proposal", append(proposal, zap.Stringer("status", status))...)

	return types.ProposalVerdict{Status: status, TxResults: results}, nil
}

// ProcessTxs checks txs with the rules of ProcessProposal, without
// requiring a vote-extension digest.
func (p *Processor) ProcessTxs(ctx context.Context, st State, txs []types.Tx) ([]types.TxResult, error) {
	results, _, err := p.process(ctx, st, txs)
	return results, err
}
