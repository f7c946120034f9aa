package models

type TestStatus string

const (
	TestStatusRegistered    TestStatus = "registered"
	TestStatusCollected     TestStatus = "collected"
	TestStatusCompleted     TestStatus = "completed"
	TestStatusAuthenticated TestStatus = "authenticated"
	TestStatusRecollected   TestStatus = "recollected"
)

// IsTerminal reports whether no further transition is permitted.
func (s TestStatus) IsTerminal() bool { return s == TestStatusAuthenticated }

// AwaitingCollection reports whether the test still needs a specimen.
func (s TestStatus) AwaitingCollection() bool {
	return s == TestStatusRegistered || s == TestStatusRecollected
}

func (s TestStatus) Valid() bool {
	switch s {
	case TestStatusRegistered, TestStatusCollected, TestStatusCompleted,
		TestStatusAuthenticated, TestStatusRecollected:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderStatusRegistered    OrderStatus = "registered"
	OrderStatusCollected     OrderStatus = "collected"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusAuthenticated OrderStatus = "authenticated"
	OrderStatusRecollected   OrderStatus = "recollected"
)

// rank orders statuses for the sticky forward-only aggregation rule.
// Recollected sits with registered: both mean "specimen needed".
func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusCollected:
		return 1
	case OrderStatusCompleted:
		return 2
	case OrderStatusAuthenticated:
		return 3
	default:
		return 0
	}
}

type BarcodeAction string

const (
	BarcodeActionCollect      BarcodeAction = "collect"
	BarcodeActionComplete     BarcodeAction = "completed"
	BarcodeActionAuthenticate BarcodeAction = "authenticated"
	BarcodeActionRecollect    BarcodeAction = "recollect"
)

// BulkOperation selects what a batch run does to each order.
type BulkOperation string

const (
	BulkOperationBarcodes     BulkOperation = "barcodes"
	BulkOperationCollect      BulkOperation = "collect"
	BulkOperationResults      BulkOperation = "results"
	BulkOperationAuthenticate BulkOperation = "authenticate"
	BulkOperationRecollect    BulkOperation = "recollect"
)

func (op BulkOperation) Valid() bool {
	switch op {
	case BulkOperationBarcodes, BulkOperationCollect, BulkOperationResults,
		BulkOperationAuthenticate, BulkOperationRecollect:
		return true
	}
	return false
}

// RunState is the batch runner's lifecycle.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateCancelled RunState = "cancelled"
)
