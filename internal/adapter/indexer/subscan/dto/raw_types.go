package dto

// TransfersRequest is the body of POST /api/scan/transfers.
type TransfersRequest struct {
	Address string `json:"address"`
	Row     int    `json:"row"`
	Page    int    `json:"page"`
}

// Envelope is the common Subscan response wrapper.
type Envelope struct {
	Code    *int           `json:"code"`
	Message string         `json:"message"`
	Data    *TransfersData `json:"data"`
}

// TransfersData is the data object of a transfers response.
type TransfersData struct {
	Count     int           `json:"count"`
	Transfers []TransferRaw `json:"transfers"`
}

// TransferRaw is one transfer as Subscan reports it. Pointer fields are
// required and checked by the mapper.
type TransferRaw struct {
	Hash           *string `json:"hash"`
	From           *string `json:"from"`
	To             *string `json:"to"`
	Amount         *string `json:"amount"`
	BlockTimestamp *int64  `json:"block_timestamp"`
	Success        bool    `json:"success"`
	Fee            string  `json:"fee"`
	AssetSymbol    string  `json:"asset_symbol"`
}
