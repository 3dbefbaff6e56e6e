package subscan

import (
	"fmt"
	"time"

	"substrate-gateway/internal/adapter/indexer/subscan/dto"
	"substrate-gateway/internal/domain/entity"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/holiman/uint256"
)

// toDomainTransfers maps raw transfers. Unlike the registry mapper it does
// not skip bad items: one malformed item rejects the whole response.
func toDomainTransfers(raw []dto.TransferRaw, decimals int) ([]entity.IndexedTransfer, error) {
	transfers := make([]entity.IndexedTransfer, 0, len(raw))
	for i, r := range raw {
		t, err := toDomainTransfer(r, decimals)
		if err != nil {
			return nil, fmt.Errorf("%w: transfer %d: %v", apperrors.ErrMalformedResponse, i, err)
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

func toDomainTransfer(r dto.TransferRaw, decimals int) (entity.IndexedTransfer, error) {
	switch {
	case r.Hash == nil || *r.Hash == "":
		return entity.IndexedTransfer{}, fmt.Errorf("missing hash")
	case r.From == nil || r.To == nil:
		return entity.IndexedTransfer{}, fmt.Errorf("missing from or to")
	case r.Amount == nil:
		return entity.IndexedTransfer{}, fmt.Errorf("missing amount")
	case r.BlockTimestamp == nil:
		return entity.IndexedTransfer{}, fmt.Errorf("missing block_timestamp")
	}

	t := entity.IndexedTransfer{
		Hash:      *r.Hash,
		From:      *r.From,
		To:        *r.To,
		Amount:    *r.Amount,
		Symbol:    r.AssetSymbol,
		Timestamp: time.Unix(*r.BlockTimestamp, 0).UTC(),
		Success:   r.Success,
	}
	if r.Fee != "" {
		planck, err := uint256.FromDecimal(r.Fee)
		if err != nil {
			return entity.IndexedTransfer{}, fmt.Errorf("fee %q: %v", r.Fee, err)
		}
		fee := entity.NewAmount(planck, decimals)
		t.Fee = &fee
	}
	return t, nil
}
