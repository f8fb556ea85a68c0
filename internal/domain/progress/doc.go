// Package progress contains the point ledger and tier ladder of the companion
// engine.
//
// The package defines:
//
//   - Entities: State (one per user), PointGrant (immutable ledger entry)
//   - Value objects: Category, Window, TierUnlock, TierProgress
//   - Static configuration: TierTable, PointValues
//   - Repository interface: Repository
//
// # Tier resolution
//
// A TierTable is validated once at load. Resolution is a binary search over
// strictly increasing thresholds, so it is total and monotonic:
//
//	table := progress.DefaultTierTable()
//	table.Resolve(130)            // 2
//	table.UnlockedFeatures(3)     // symptom_journal ... mood_insights
//	table.ProgressFor(12000)      // ProgressPercentage == 100
//
// # Grants
//
// A grant is applied to a State inside Repository.Apply. ApplyGrant raises the
// totals, re-resolves the tier and appends an unlock for every tier crossed,
// including intermediate ones:
//
//	crossed := state.ApplyGrant(table, grant)
//
// Celebrations are an acknowledgement set next to the unlock history, so the
// history itself is never rewritten.
package progress
