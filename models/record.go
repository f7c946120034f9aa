package models

// PatientRecord is one patient's entry inside a record shard: demographic
// details plus every order registered for them.
type PatientRecord struct {
	Details Patient `json:"details"`
	Orders  []Order `json:"orders"`
}

// RecordShard is a new_record document. Patients are keyed by a stable
// patientKey so writes can address one patient without rewriting siblings.
type RecordShard struct {
	Patients map[string]PatientRecord `json:"patients"`
}

// FindOrder returns a pointer into the record's orders for in-place mutation.
func (r *PatientRecord) FindOrder(orderID string) *Order {
	for i := range r.Orders {
		if r.Orders[i].OrderID == orderID {
			return &r.Orders[i]
		}
	}
	return nil
}
