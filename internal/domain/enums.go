package domain

import "fmt"

// Platform is one external marketplace/system we synchronize with.
type Platform string

const (
	PlatformEmagBg      Platform = "eMagBg"
	PlatformEmagRo      Platform = "eMagRo"
	PlatformEmagHu      Platform = "eMagHu"
	PlatformBol         Platform = "Bol"
	PlatformSkroutz     Platform = "Skroutz"
	PlatformMagento     Platform = "Magento"
	PlatformMicroinvest Platform = "Microinvest"
)

var allPlatforms = []Platform{
	PlatformEmagBg,
	PlatformEmagRo,
	PlatformEmagHu,
	PlatformBol,
	PlatformSkroutz,
	PlatformMagento,
	PlatformMicroinvest,
}

func AllPlatforms() []Platform {
	out := make([]Platform, len(allPlatforms))
	copy(out, allPlatforms)
	return out
}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range allPlatforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// SyncDirection tells whether data flows from the platform to us or back.
type SyncDirection string

const (
	DirectionInbound  SyncDirection = "INBOUND"
	DirectionOutbound SyncDirection = "OUTBOUND"
)

func ParseSyncDirection(s string) (SyncDirection, error) {
	switch SyncDirection(s) {
	case DirectionInbound, DirectionOutbound:
		return SyncDirection(s), nil
	}
	return "", fmt.Errorf("unknown sync direction %q", s)
}

// SyncOperation is the kind of work a sync run performs.
type SyncOperation string

const (
	OperationOrders        SyncOperation = "ORDERS"
	OperationReturns       SyncOperation = "RETURNS"
	OperationStockUpdate   SyncOperation = "STOCK_UPDATE"
	OperationFeedUpdate    SyncOperation = "FEED_UPDATE"
	OperationFullSync      SyncOperation = "FULL_SYNC"
	OperationProductImport SyncOperation = "PRODUCT_IMPORT"
	OperationAuthToken     SyncOperation = "AUTH_TOKEN"
)

func ParseSyncOperation(s string) (SyncOperation, error) {
	switch SyncOperation(s) {
	case OperationOrders, OperationReturns, OperationStockUpdate,
		OperationFeedUpdate, OperationFullSync, OperationProductImport,
		OperationAuthToken:
		return SyncOperation(s), nil
	}
	return "", fmt.Errorf("unknown sync operation %q", s)
}

// SyncStatus is the lifecycle state of a sync run. STARTED is the only
// non-terminal state.
type SyncStatus string

const (
	StatusStarted        SyncStatus = "STARTED"
	StatusSuccess        SyncStatus = "SUCCESS"
	StatusPartialSuccess SyncStatus = "PARTIAL_SUCCESS"
	StatusFailed         SyncStatus = "FAILED"
	StatusCancelled      SyncStatus = "CANCELLED"
	StatusTimeout        SyncStatus = "TIMEOUT"
)

func (s SyncStatus) IsTerminal() bool {
	return s != StatusStarted
}

func ParseSyncStatus(s string) (SyncStatus, error) {
	switch SyncStatus(s) {
	case StatusStarted, StatusSuccess, StatusPartialSuccess,
		StatusFailed, StatusCancelled, StatusTimeout:
		return SyncStatus(s), nil
	}
	return "", fmt.Errorf("unknown sync status %q", s)
}
