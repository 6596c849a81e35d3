package state

const (
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionThresholdYrs  = 2

	// CustodySize is the stored size of a custody account.
	CustodySize = 165
)

// RentExemptMinimum returns the reserve a record of size bytes must hold for
// as long as it exists. The reserve is returned when the record is closed.
func RentExemptMinimum(size int) uint64 {
	if size < 0 {
		size = 0
	}
	return uint64(accountStorageOverhead+size) * lamportsPerByteYear * exemptionThresholdYrs
}
