package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"substrate-gateway/internal/adapter/ss58"
	"substrate-gateway/internal/adapter/substrate"
	"substrate-gateway/internal/application/port"
	"substrate-gateway/internal/config"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainRepo "substrate-gateway/internal/domain/repository"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/metrics"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Compile-time check
var _ port.ChainService = (*chainService)(nil)

// validatorPageSize is how many validators FetchValidators returns.
const validatorPageSize = 15

var errSubscriptionEnded = errors.New("subscription ended")

// chainService implements port.ChainService. Every query falls back to the
// last-known-good snapshot when the chain cannot be reached.
type chainService struct {
	networks    domainRepo.NetworkRepository
	connections port.ConnectionProvider
	addresses   *addressService
	cacheRepo   domainRepo.CacheRepository
	indexer     domainService.TransferIndexer
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         config.Config
	rootCtx     context.Context

	headsMu sync.RWMutex
	heads   map[entity.NetworkID]headState
}

type headState struct {
	header entity.BlockHeader
	seenAt time.Time
}

// NewChainService creates the chain service and, when enabled, starts one
// head watcher per network that has endpoints.
func NewChainService(
	rootCtx context.Context,
	networks domainRepo.NetworkRepository,
	connections port.ConnectionProvider,
	cacheRepo domainRepo.CacheRepository,
	indexer domainService.TransferIndexer,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg config.Config,
) port.ChainService {
	s := &chainService{
		networks:    networks,
		connections: connections,
		addresses:   newAddressService(networks, logger),
		cacheRepo:   cacheRepo,
		indexer:     indexer,
		metrics:     m,
		logger:      logger.Named("ChainService"),
		cfg:         cfg,
		rootCtx:     rootCtx,
		heads:       make(map[entity.NetworkID]headState),
	}

	if cfg.Watcher.Enabled {
		for _, network := range networks.ListNetworks() {
			if len(network.Endpoints) > 0 {
				go s.watchHeads(network.ID)
			}
		}
	}

	return s
}

// ListNetworks returns the registry.
func (s *chainService) ListNetworks() []entity.Network {
	return s.networks.ListNetworks()
}

// chainNetwork resolves a network that can be queried over RPC.
func (s *chainService) chainNetwork(id entity.NetworkID) (entity.Network, error) {
	network, err := s.networks.GetNetwork(id)
	if err != nil {
		return entity.Network{}, err
	}
	if len(network.Endpoints) == 0 {
		return entity.Network{}, fmt.Errorf("%w: %s", domain.ErrNoEndpoints, id)
	}
	return network, nil
}

// runQuery executes fetch and records a snapshot on success. On failure the
// snapshot stored under key, if any, is returned as stale.
func runQuery[T any](
	ctx context.Context,
	s *chainService,
	network entity.NetworkID,
	query, key string,
	fetch func(context.Context) (T, error),
) entity.Result[T] {
	value, err := fetch(ctx)
	if err == nil {
		now := time.Now()
		snapshot := entity.Snapshot{Value: value, FetchedAt: now}
		if cacheErr := s.cacheRepo.SetSnapshot(ctx, key, snapshot, s.cfg.Cache.SnapshotTTL); cacheErr != nil {
			s.logger.Warn("Failed to store snapshot", zap.String("key", key), zap.Error(cacheErr))
		}
		s.recordQuery(network, query, entity.StatusLive)
		return entity.Live(value, now)
	}

	s.logger.Warn("Query failed",
		zap.String("network", network.String()), zap.String("query", query), zap.Error(err))

	snapshot, found, cacheErr := s.cacheRepo.GetSnapshot(ctx, key)
	if cacheErr != nil {
		s.logger.Warn("Failed to read snapshot", zap.String("key", key), zap.Error(cacheErr))
	}
	if found {
		if v, ok := snapshot.Value.(T); ok {
			s.recordQuery(network, query, entity.StatusStale)
			return entity.Stale(v, snapshot.FetchedAt, err)
		}
	}
	s.recordQuery(network, query, entity.StatusUnavailable)
	return entity.Unavailable[T](err)
}

func (s *chainService) recordQuery(network entity.NetworkID, query string, status entity.DataStatus) {
	s.metrics.QueryResults.WithLabelValues(network.String(), query, string(status)).Inc()
}

func snapshotKey(query string, network entity.NetworkID, parts ...string) string {
	return strings.Join(append([]string{query, network.String()}, parts...), ":")
}

// getStorage reads one storage value. found is false when the node has no
// value under key.
func getStorage(ctx context.Context, conn domainService.Connection, key []byte) (value []byte, found bool, err error) {
	var raw *string
	if err := conn.Call(ctx, "state_getStorage", []any{substrate.HexEncode(key)}, &raw); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	value, err = substrate.HexDecode(*raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: state_getStorage value: %v", apperrors.ErrMalformedResponse, err)
	}
	return value, true, nil
}

// storageChangeSet is a state_queryStorageAt item and a
// state_subscribeStorage notification.
type storageChangeSet struct {
	Block   string       `json:"block"`
	Changes [][2]*string `json:"changes"`
}

// values indexes the change set by lower-case key. A nil value means the key was removed.
func (c storageChangeSet) values() (map[string]*string, error) {
	if c.Block == "" || c.Changes == nil {
		return nil, fmt.Errorf("%w: storage change set without block or changes", apperrors.ErrMalformedResponse)
	}
	out := make(map[string]*string, len(c.Changes))
	for _, change := range c.Changes {
		if change[0] == nil {
			return nil, fmt.Errorf("%w: storage change without key", apperrors.ErrMalformedResponse)
		}
		out[strings.ToLower(*change[0])] = change[1]
	}
	return out, nil
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedResponse, what, err)
}

func (s *chainService) FetchAccountData(
	ctx context.Context,
	id entity.NetworkID,
	address string,
) (entity.Result[entity.AccountBalance], error) {
	network, err := s.chainNetwork(id)
	if err != nil {
		return entity.Result[entity.AccountBalance]{}, err
	}
	accountID, normalized, err := s.addresses.resolveAccount(address, network)
	if err != nil {
		return entity.Result[entity.AccountBalance]{}, err
	}

	key := substrate.SystemAccountKey(accountID)
	return runQuery(ctx, s, id, "balance", snapshotKey("balance", id, normalized),
		func(ctx context.Context) (entity.AccountBalance, error) {
			conn, err := s.connections.GetConnection(ctx, id)
			if err != nil {
				return entity.AccountBalance{}, err
			}
			raw, found, err := getStorage(ctx, conn, key)
			if err != nil {
				return entity.AccountBalance{}, err
			}
			return decodeBalance(network, raw, found)
		}), nil
}

// decodeBalance maps System.Account to a balance. A missing entry is an
// account that holds nothing.
func decodeBalance(network entity.Network, raw []byte, found bool) (entity.AccountBalance, error) {
	if !found {
		zero := entity.NewAmount(nil, network.Decimals)
		return entity.AccountBalance{Free: zero, Reserved: zero, Frozen: zero}, nil
	}
	info, err := substrate.DecodeAccountInfo(raw)
	if err != nil {
		return entity.AccountBalance{}, malformed("System.Account", err)
	}
	return entity.AccountBalance{
		Free:     entity.NewAmount(info.Free, network.Decimals),
		Reserved: entity.NewAmount(info.Reserved, network.Decimals),
		Frozen:   entity.NewAmount(info.Frozen, network.Decimals),
	}, nil
}

func (s *chainService) SubscribeAccountData(
	ctx context.Context,
	id entity.NetworkID,
	address string,
	fn func(entity.Result[entity.AccountBalance]),
) (domainService.Subscription, error) {
	network, err := s.chainNetwork(id)
	if err != nil {
		return nil, err
	}
	accountID, normalized, err := s.addresses.resolveAccount(address, network)
	if err != nil {
		return nil, err
	}
	conn, err := s.connections.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}

	storageKey := substrate.HexEncode(substrate.SystemAccountKey(accountID))
	cacheKey := snapshotKey("balance", id, normalized)

	return conn.Subscribe(ctx, "state_subscribeStorage", "state_unsubscribeStorage", []any{[]string{storageKey}},
		func(raw json.RawMessage) {
			balance, err := decodeBalanceChange(network, storageKey, raw)
			if err != nil {
				s.logger.Warn("Dropping malformed balance notification",
					zap.String("network", id.String()), zap.Error(err))
				s.recordQuery(id, "balance_stream", entity.StatusUnavailable)
				fn(entity.Unavailable[entity.AccountBalance](err))
				return
			}
			now := time.Now()
			snapshot := entity.Snapshot{Value: balance, FetchedAt: now}
			if err := s.cacheRepo.SetSnapshot(s.rootCtx, cacheKey, snapshot, s.cfg.Cache.SnapshotTTL); err != nil {
				s.logger.Warn("Failed to store snapshot", zap.String("key", cacheKey), zap.Error(err))
			}
			s.recordQuery(id, "balance_stream", entity.StatusLive)
			fn(entity.Live(balance, now))
		})
}

func decodeBalanceChange(network entity.Network, storageKey string, raw json.RawMessage) (entity.AccountBalance, error) {
	var set storageChangeSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return entity.AccountBalance{}, malformed("storage notification", err)
	}
	values, err := set.values()
	if err != nil {
		return entity.AccountBalance{}, err
	}
	value, ok := values[strings.ToLower(storageKey)]
	if !ok {
		return entity.AccountBalance{}, fmt.Errorf("%w: storage notification lacks the subscribed key", apperrors.ErrMalformedResponse)
	}
	if value == nil {
		return decodeBalance(network, nil, false)
	}
	b, err := substrate.HexDecode(*value)
	if err != nil {
		return entity.AccountBalance{}, malformed("storage notification value", err)
	}
	return decodeBalance(network, b, true)
}

func (s *chainService) FetchStakingData(
	ctx context.Context,
	id entity.NetworkID,
	address string,
) (entity.Result[entity.StakingInfo], error) {
	network, err := s.chainNetwork(id)
	if err != nil {
		return entity.Result[entity.StakingInfo]{}, err
	}
	accountID, normalized, err := s.addresses.resolveAccount(address, network)
	if err != nil {
		return entity.Result[entity.StakingInfo]{}, err
	}

	return runQuery(ctx, s, id, "staking", snapshotKey("staking", id, normalized),
		func(ctx context.Context) (entity.StakingInfo, error) {
			if !network.Staking {
				return zeroStaking(network), nil
			}
			conn, err := s.connections.GetConnection(ctx, id)
			if err != nil {
				return entity.StakingInfo{}, err
			}
			raw, found, err := getStorage(ctx, conn, substrate.StakingLedgerKey(accountID))
			if err != nil {
				return entity.StakingInfo{}, err
			}
			if !found {
				return zeroStaking(network), nil
			}
			ledger, err := substrate.DecodeStakingLedger(raw)
			if err != nil {
				return entity.StakingInfo{}, malformed("Staking.Ledger", err)
			}
			if ledger.Total.Lt(ledger.Active) {
				return entity.StakingInfo{}, fmt.Errorf("%w: Staking.Ledger active %s exceeds total %s",
					apperrors.ErrMalformedResponse, ledger.Active.Dec(), ledger.Total.Dec())
			}
			return entity.StakingInfo{
				Bonded:    entity.NewAmount(ledger.Active, network.Decimals),
				Total:     entity.NewAmount(ledger.Total, network.Decimals),
				Unlocking: entity.NewAmount(new(uint256.Int).Sub(ledger.Total, ledger.Active), network.Decimals),
			}, nil
		}), nil
}

func zeroStaking(network entity.Network) entity.StakingInfo {
	zero := entity.NewAmount(nil, network.Decimals)
	return entity.StakingInfo{Bonded: zero, Total: zero, Unlocking: zero}
}

func (s *chainService) FetchValidators(ctx context.Context, id entity.NetworkID) (entity.Result[[]entity.Validator], error) {
	network, err := s.chainNetwork(id)
	if err != nil {
		return entity.Result[[]entity.Validator]{}, err
	}

	return runQuery(ctx, s, id, "validators", snapshotKey("validators", id),
		func(ctx context.Context) ([]entity.Validator, error) {
			if !network.Staking {
				return []entity.Validator{}, nil
			}
			conn, err := s.connections.GetConnection(ctx, id)
			if err != nil {
				return nil, err
			}

			var keys []string
			prefix := substrate.HexEncode(substrate.StakingValidatorsPrefix)
			if err := conn.Call(ctx, "state_getKeysPaged", []any{prefix, validatorPageSize, nil}, &keys); err != nil {
				return nil, err
			}
			if len(keys) == 0 {
				return []entity.Validator{}, nil
			}

			var sets []storageChangeSet
			if err := conn.Call(ctx, "state_queryStorageAt", []any{keys}, &sets); err != nil {
				return nil, err
			}
			values := make(map[string]*string)
			for _, set := range sets {
				v, err := set.values()
				if err != nil {
					return nil, err
				}
				for k, val := range v {
					values[k] = val
				}
			}

			validators := make([]entity.Validator, 0, len(keys))
			for _, key := range keys {
				validator, ok, err := decodeValidator(network, key, values[strings.ToLower(key)])
				if err != nil {
					return nil, err
				}
				if !ok {
					s.logger.Debug("Validator removed between key listing and query", zap.String("key", key))
					continue
				}
				validators = append(validators, validator)
			}
			return validators, nil
		}), nil
}

func decodeValidator(network entity.Network, key string, value *string) (entity.Validator, bool, error) {
	if value == nil {
		return entity.Validator{}, false, nil
	}
	keyBytes, err := substrate.HexDecode(key)
	if err != nil {
		return entity.Validator{}, false, malformed("Staking.Validators key", err)
	}
	accountID, err := substrate.AccountIDFromTwox64ConcatKey(keyBytes)
	if err != nil {
		return entity.Validator{}, false, malformed("Staking.Validators key", err)
	}
	address, err := ss58.Encode(accountID, network.Prefix)
	if err != nil {
		return entity.Validator{}, false, malformed("Staking.Validators key", err)
	}
	raw, err := substrate.HexDecode(*value)
	if err != nil {
		return entity.Validator{}, false, malformed("Staking.Validators value", err)
	}
	prefs, err := substrate.DecodeValidatorPrefs(raw)
	if err != nil {
		return entity.Validator{}, false, malformed("Staking.Validators value", err)
	}
	return entity.Validator{
		Address:    address,
		Commission: substrate.FormatCommission(prefs.Commission),
		Identity:   shortIdentity(address),
		Blocked:    prefs.Blocked,
	}, true, nil
}

// shortIdentity abbreviates an address for display when no on-chain identity is known.
func shortIdentity(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:8] + "..." + address[len(address)-4:]
}

func (s *chainService) FetchNominations(
	ctx context.Context,
	id entity.NetworkID,
	address string,
) (entity.Result[[]string], error) {
	network, err := s.chainNetwork(id)
	if err != nil {
		return entity.Result[[]string]{}, err
	}
	accountID, normalized, err := s.addresses.resolveAccount(address, network)
	if err != nil {
		return entity.Result[[]string]{}, err
	}

	return runQuery(ctx, s, id, "nominations", snapshotKey("nominations", id, normalized),
		func(ctx context.Context) ([]string, error) {
			if !network.Staking {
				return []string{}, nil
			}
			conn, err := s.connections.GetConnection(ctx, id)
			if err != nil {
				return nil, err
			}
			raw, found, err := getStorage(ctx, conn, substrate.StakingNominatorsKey(accountID))
			if err != nil {
				return nil, err
			}
			if !found {
				return []string{}, nil
			}
			nominations, err := substrate.DecodeNominations(raw)
			if err != nil {
				return nil, malformed("Staking.Nominators", err)
			}
			targets := make([]string, 0, len(nominations.Targets))
			for _, t := range nominations.Targets {
				addr, err := ss58.Encode(t, network.Prefix)
				if err != nil {
					return nil, malformed("Staking.Nominators target", err)
				}
				targets = append(targets, addr)
			}
			return targets, nil
		}), nil
}

// runtimeVersion is the subset of state_getRuntimeVersion the gateway reads.
type runtimeVersion struct {
	SpecName           *string `json:"specName"`
	ImplName           string  `json:"implName"`
	SpecVersion        *uint32 `json:"specVersion"`
	TransactionVersion *uint32 `json:"transactionVersion"`
}

func (s *chainService) FetchChainMetadata(ctx context.Context, id entity.NetworkID) (entity.Result[entity.ChainMetadata], error) {
	if _, err := s.chainNetwork(id); err != nil {
		return entity.Result[entity.ChainMetadata]{}, err
	}

	return runQuery(ctx, s, id, "metadata", snapshotKey("metadata", id),
		func(ctx context.Context) (entity.ChainMetadata, error) {
			conn, err := s.connections.GetConnection(ctx, id)
			if err != nil {
				return entity.ChainMetadata{}, err
			}

			var rv runtimeVersion
			if err := conn.Call(ctx, "state_getRuntimeVersion", nil, &rv); err != nil {
				return entity.ChainMetadata{}, err
			}
			if rv.SpecName == nil || rv.SpecVersion == nil || rv.TransactionVersion == nil {
				return entity.ChainMetadata{}, fmt.Errorf("%w: state_getRuntimeVersion lacks specName, specVersion or transactionVersion",
					apperrors.ErrMalformedResponse)
			}

			genesis, err := blockHash(ctx, conn, 0)
			if err != nil {
				return entity.ChainMetadata{}, err
			}
			return entity.ChainMetadata{
				SpecName:    *rv.SpecName,
				SpecVersion: *rv.SpecVersion,
				ImplName:    rv.ImplName,
				TxVersion:   *rv.TransactionVersion,
				GenesisHash: genesis,
			}, nil
		}), nil
}

// blockHash returns the hash of block number, which must exist.
func blockHash(ctx context.Context, conn domainService.Connection, number uint64) (string, error) {
	var hash *string
	if err := conn.Call(ctx, "chain_getBlockHash", []any{number}, &hash); err != nil {
		return "", err
	}
	if hash == nil {
		return "", fmt.Errorf("%w: no hash for block %d", apperrors.ErrMalformedResponse, number)
	}
	b, err := substrate.HexDecode(*hash)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: block hash %q", apperrors.ErrMalformedResponse, *hash)
	}
	return *hash, nil
}

// headerNotification is the subset of a chain_subscribeNewHeads item the gateway reads.
type headerNotification struct {
	ParentHash string `json:"parentHash"`
	Number     string `json:"number"`
}

func parseHeader(raw json.RawMessage) (entity.BlockHeader, error) {
	var h headerNotification
	if err := json.Unmarshal(raw, &h); err != nil {
		return entity.BlockHeader{}, malformed("header", err)
	}
	if h.ParentHash == "" || h.Number == "" {
		return entity.BlockHeader{}, fmt.Errorf("%w: header lacks number or parentHash", apperrors.ErrMalformedResponse)
	}
	number, err := strconv.ParseUint(strings.TrimPrefix(h.Number, "0x"), 16, 64)
	if err != nil {
		return entity.BlockHeader{}, malformed("header number", err)
	}
	return entity.BlockHeader{Number: number, ParentHash: h.ParentHash}, nil
}

func (s *chainService) SubscribeNewBlocks(
	ctx context.Context,
	id entity.NetworkID,
	fn func(entity.BlockHeader),
) (domainService.Subscription, error) {
	if _, err := s.chainNetwork(id); err != nil {
		return nil, err
	}
	conn, err := s.connections.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}

	return conn.Subscribe(ctx, "chain_subscribeNewHeads", "chain_unsubscribeNewHeads", nil,
		func(raw json.RawMessage) {
			header, err := parseHeader(raw)
			if err != nil {
				s.logger.Warn("Dropping malformed header", zap.String("network", id.String()), zap.Error(err))
				return
			}
			hctx, cancel := context.WithTimeout(s.rootCtx, s.requestTimeout())
			header.Hash, err = blockHash(hctx, conn, header.Number)
			cancel()
			if err != nil {
				s.logger.Warn("Failed to look up head hash",
					zap.String("network", id.String()), zap.Uint64("number", header.Number), zap.Error(err))
				return
			}
			fn(header)
		})
}

func (s *chainService) requestTimeout() time.Duration {
	if s.cfg.Connection.RequestTimeout > 0 {
		return s.cfg.Connection.RequestTimeout
	}
	return 15 * time.Second
}

func (s *chainService) FetchTransactionHistory(
	ctx context.Context,
	id entity.NetworkID,
	address string,
) (entity.Result[[]entity.Transfer], error) {
	network, err := s.networks.GetNetwork(id)
	if err != nil {
		return entity.Result[[]entity.Transfer]{}, err
	}
	if network.IndexerSlug == "" {
		return entity.Result[[]entity.Transfer]{}, fmt.Errorf("%w: no transfer indexer for %s", apperrors.ErrNotFound, id)
	}
	_, normalized, err := s.addresses.resolveAccount(address, network)
	if err != nil {
		return entity.Result[[]entity.Transfer]{}, err
	}

	return runQuery(ctx, s, id, "transfers", snapshotKey("transfers", id, normalized),
		func(ctx context.Context) ([]entity.Transfer, error) {
			items, err := s.indexer.FetchTransfers(ctx, network, normalized)
			if err != nil {
				return nil, err
			}
			transfers := make([]entity.Transfer, 0, len(items))
			for _, item := range items {
				transfers = append(transfers, toTransfer(network, normalized, item))
			}
			return transfers, nil
		}), nil
}

// toTransfer relates an indexed transfer to the queried account. Both sides
// are normalized first since indexers may report a different prefix.
func toTransfer(network entity.Network, account string, item entity.IndexedTransfer) entity.Transfer {
	from := normalizeFor(item.From, network)
	to := normalizeFor(item.To, network)

	t := entity.Transfer{
		ID:           item.Hash,
		Direction:    entity.TransferReceive,
		Amount:       item.Amount,
		Token:        item.Symbol,
		Timestamp:    item.Timestamp,
		Status:       entity.TransferConfirmed,
		Counterparty: from,
		Fee:          item.Fee,
		TxHash:       item.Hash,
	}
	if from == account {
		t.Direction = entity.TransferSend
		t.Counterparty = to
	}
	if t.Token == "" {
		t.Token = network.Ticker
	}
	if !item.Success {
		t.Status = entity.TransferFailed
	}
	return t
}

// NetworkStatus is Synced only while the connection is live and a head was
// seen within the staleness window.
func (s *chainService) NetworkStatus(id entity.NetworkID) (entity.NetworkStatus, error) {
	if _, err := s.networks.GetNetwork(id); err != nil {
		return entity.NetworkStatus{}, err
	}

	status := entity.NetworkStatus{ConnectionStatus: s.connections.Status(id)}

	s.headsMu.RLock()
	head, ok := s.heads[id]
	s.headsMu.RUnlock()
	if ok {
		header := head.header
		seenAt := head.seenAt
		status.LatestBlock = &header
		status.LastHeadAt = &seenAt
		status.Synced = status.Connected && time.Since(seenAt) <= s.cfg.Watcher.StaleAfter
	}
	return status, nil
}

func (s *chainService) recordHead(id entity.NetworkID, header entity.BlockHeader) {
	s.headsMu.Lock()
	defer s.headsMu.Unlock()
	if current, ok := s.heads[id]; ok && current.header.Number > header.Number {
		return
	}
	s.heads[id] = headState{header: header, seenAt: time.Now()}
}

// watchHeads follows the new heads of a network until the root context ends,
// resubscribing after every failure.
func (s *chainService) watchHeads(id entity.NetworkID) {
	logger := s.logger.With(zap.String("network", id.String()))
	logger.Info("Starting head watcher")

	for {
		err := s.followHeads(id)
		if s.rootCtx.Err() != nil {
			logger.Info("Head watcher stopping due to context cancellation.")
			return
		}
		logger.Warn("Head watcher interrupted, restarting",
			zap.Duration("delay", s.cfg.Watcher.RestartDelay), zap.Error(err))

		timer := time.NewTimer(s.cfg.Watcher.RestartDelay)
		select {
		case <-timer.C:
		case <-s.rootCtx.Done():
			timer.Stop()
			logger.Info("Head watcher stopping due to context cancellation.")
			return
		}
	}
}

func (s *chainService) followHeads(id entity.NetworkID) error {
	sub, err := s.SubscribeNewBlocks(s.rootCtx, id, func(header entity.BlockHeader) {
		s.recordHead(id, header)
	})
	if err != nil {
		return err
	}

	select {
	case err, ok := <-sub.Err():
		if !ok || err == nil {
			return errSubscriptionEnded
		}
		return err
	case <-s.rootCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sub.Unsubscribe(ctx); err != nil {
			s.logger.Debug("Unsubscribe on shutdown failed", zap.String("network", id.String()), zap.Error(err))
		}
		return nil
	}
}
