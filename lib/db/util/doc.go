// Package util provides the statistics helpers behind DatabaseInfo.
//
//   - Stats and DistributionStats summarize a set of values, the flat
//     backend uses them for its file sizes and namespace balance
//   - SizeHistogram tracks the size of written documents for the database
//     façade
package util
