package model

// ReceiptCounter is the durable high-water mark of allocated receipt
// numbers. There is exactly one row per hub instance. Value is strictly
// increasing and survives restarts; gaps are acceptable, duplicates are
// not.
type ReceiptCounter struct {
	ID    int64 `gorm:"primaryKey"`
	Value int64 `gorm:"not null"`
}
