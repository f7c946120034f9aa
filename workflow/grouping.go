package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// BarcodePlan is the outcome of one barcode generation: the printable labels
// in order and the number of freshly allocated sample identifiers.
type BarcodePlan struct {
	Labels    []models.BarcodeLabel `json:"labels"`
	Allocated int                   `json:"allocated"`
	Collected int                   `json:"collected"`
}

// labelGroup is one specimen-in-the-making: the tests that will share a
// sample identifier.
type labelGroup struct {
	single     bool
	sampleType string
	department string
	tests      []*models.Test
	sampleID   string
}

// GenerateBarcodes plans and prints the labels for one order. Tests flagged
// single-specimen (or already carrying a result and a sample id) each get
// their own label; the rest group by sample type, optionally split by
// department, and chunk into at most testsPerBarcode per label. Each chunk
// reuses a member's existing sample identifier when one exists, otherwise a
// new one is allocated. Awaiting tests in a chunk are collected under the
// chunk's identifier in the same transaction.
func (e *Engine) GenerateBarcodes(ctx context.Context, ref OrderRef) (*BarcodePlan, error) {
	catalog, err := e.Repo.TestCatalog(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := e.Repo.BarcodeSettings(ctx)
	if err != nil {
		return nil, err
	}
	singles, err := e.Repo.SingleBarcodeTests(ctx)
	if err != nil {
		return nil, err
	}

	patient, snapshot, err := e.Repo.GetOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if snapshot.Status == models.OrderStatusAuthenticated {
		return nil, &utils.IllegalTransitionError{
			OrderID: snapshot.OrderID,
			From:    string(snapshot.Status),
			To:      "barcodes",
		}
	}

	groups := planGroups(snapshot, catalog, singles, settings)

	plan := &BarcodePlan{}
	branch := e.branchFor(ctx, snapshot)
	assigned := make(map[string]string)
	for _, g := range groups {
		if g.sampleID == "" {
			sampleID, err := e.Seq.NextSampleID(ctx, branch)
			if err != nil {
				return nil, err
			}
			g.sampleID = sampleID
			plan.Allocated++
		}
		for _, t := range g.tests {
			if t.Status.AwaitingCollection() {
				assigned[t.TestID] = g.sampleID
			}
		}
		plan.Labels = append(plan.Labels, buildLabel(patient, snapshot, g, catalog, settings))
	}

	if len(assigned) > 0 {
		actor := utils.ActorDisplayName(ctx)
		now := e.Now()
		var collected []collectedTest

		if _, err := e.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
			collected = collected[:0]
			var flags models.TransitionFlags
			for testID, sampleID := range assigned {
				t := o.FindTest(testID)
				if t == nil || !t.Status.AwaitingCollection() {
					continue
				}
				if err := t.Collect(o.OrderID, sampleID, actor, now); err != nil {
					return err
				}
				flags.Collected = true
				collected = append(collected, collectedTest{t.TestID, t.TestName, t.SampleType})
			}
			o.ApplyAggregation(flags, actor, now)
			return nil
		}); err != nil {
			return nil, err
		}

		plan.Collected = len(collected)
		e.bumpCollectionCounters(ctx, branch, collected)
	}
	return plan, nil
}

// planGroups partitions an order's tests into label groups, preserving the
// order tests were registered in.
func planGroups(o *models.Order, catalog models.TestCatalog, singles map[string]bool, settings models.BarcodeSettings) []*labelGroup {
	chunkSize := settings.ChunkSize()

	var groups []*labelGroup
	grouped := make(map[string]*labelGroup)
	groupKeys := []string{}

	for i := range o.Tests {
		t := &o.Tests[i]
		if t.Status.IsTerminal() {
			continue
		}
		def := catalog[t.TestID]
		dept := def.Department

		if isSingleSpecimen(t, def, singles) {
			groups = append(groups, &labelGroup{
				single:     true,
				sampleType: t.SampleType,
				department: dept,
				tests:      []*models.Test{t},
				sampleID:   t.SampleID,
			})
			continue
		}

		key := t.SampleType
		if settings.GroupByDepartment {
			key += "|" + dept
		}
		g, ok := grouped[key]
		if !ok {
			g = &labelGroup{sampleType: t.SampleType, department: dept}
			grouped[key] = g
			groupKeys = append(groupKeys, key)
		}
		g.tests = append(g.tests, t)
	}

	// Chunk the grouped sets and pick each chunk's identifier from an
	// already-identified member when one exists.
	for _, key := range groupKeys {
		g := grouped[key]
		for start := 0; start < len(g.tests); start += chunkSize {
			end := min(start+chunkSize, len(g.tests))
			chunk := &labelGroup{
				sampleType: g.sampleType,
				department: g.department,
				tests:      g.tests[start:end],
			}
			for _, t := range chunk.tests {
				if t.HasSampleID() {
					chunk.sampleID = t.SampleID
					break
				}
			}
			groups = append(groups, chunk)
		}
	}
	return groups
}

// isSingleSpecimen decides whether a test prints on its own label: flagged in
// the catalog or settings, or already completed with an assigned specimen
// (a reprint must not merge it into a group).
func isSingleSpecimen(t *models.Test, def models.TestDefinition, singles map[string]bool) bool {
	if def.SingleSpecimen || singles[t.TestID] {
		return true
	}
	return t.Status == models.TestStatusCompleted && t.HasSampleID()
}

func buildLabel(p *models.Patient, o *models.Order, g *labelGroup, catalog models.TestCatalog, settings models.BarcodeSettings) models.BarcodeLabel {
	label := models.NewBarcodeLabel(p, o, g.sampleID)
	label.Single = g.single
	label.SampleType = g.sampleType
	label.Department = g.department
	for _, t := range g.tests {
		label.TestIDs = append(label.TestIDs, t.TestID)
		if def, ok := catalog[t.TestID]; ok {
			label.Abbrevs = append(label.Abbrevs, def.Abbrev())
		} else {
			label.Abbrevs = append(label.Abbrevs, models.TestDefinition{TestName: t.TestName}.Abbrev())
		}
	}
	label.AbbrevLines = models.WrapAbbrevs(label.Abbrevs, settings.WrapAbbreviations)
	return label
}
