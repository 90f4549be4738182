// Package fred pulls observation series from the St. Louis Fed FRED API.
//
// The client returns raw series: "." observations become missing values and
// nothing is sorted, deduplicated or filled here. Cleaning belongs to the
// pipeline, which must see the series as delivered.
package fred
