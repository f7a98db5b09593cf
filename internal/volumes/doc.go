// Package volumes watches free space on the staging volume and every
// catalog destination volume and derives the admission gate from it.
//
// Each volume is classified against two byte thresholds (warning,
// critical). The gate latches closed as soon as any sampled volume is
// critical and stays closed until every sampled volume is back above the
// recovery threshold, which sits strictly above critical so the gate
// cannot flap while space hovers near the line. Sampling runs on an
// adaptive cadence: short while transfers or imports are in flight, long
// when the daemon is idle.
//
// The monitor owns no record state. Consumers reach it through
// IsCritical (the gate), Statuses (the last sample), FreeBytes (a fresh
// point read for import space checks), and the gate-reopened callback
// that nudges the scheduler after a recovery.
package volumes
