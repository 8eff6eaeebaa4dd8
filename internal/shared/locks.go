package shared

import "fmt"

// LedgerWriterLockKey builds the redis key guarding the single journal writer
// for a store backend.
func LedgerWriterLockKey(store string) string {
	return fmt.Sprintf("carbonledger:ledger:%s:writer", store)
}
