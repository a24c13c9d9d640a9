package scanning

import "context"

// ReceiptData contains fields extracted from a receipt image
type ReceiptData struct {
	LocationName string  `json:"location_name"`
	Address      string  `json:"address"`
	Items        string  `json:"items"`
	Date         string  `json:"date"` // YYYY-MM-DD, empty when unknown
	Amount       float64 `json:"amount"`
}

// Scanner extracts receipt fields from an image or PDF
type Scanner interface {
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close releases resources held by the scanner
	Close() error
}
