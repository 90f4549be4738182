// Package pipeline composes the cleaning operations into ordered flows.
//
// Each flow is a sequence of stages over a shared State. Stages declare the
// conditions they require and provide, and the runner rejects a flow whose
// ordering would violate them; this is what prevents, for example, the
// percent-to-decimal conversion from running twice on the same column.
//
// The macro flow is dedupe, gap synthesis, forward fill, unit normalization,
// anomaly check, rename. The price flow is intraday aggregation, dedupe, gap
// synthesis with zero-volume rows, column suffixing. Run executes every flow
// concurrently and finishes with the single sequential merge onto the first
// price series' date axis.
package pipeline
