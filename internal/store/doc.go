// Package store moves series between the filesystem, Excel workbooks and
// SQLite.
//
// CSV and workbook loaders return raw data in delivery order; cleaning is
// the pipeline's job. The SQLite persister keeps cleaned output: column
// names, kinds and order survive a save/load round trip, and merged tables
// keep their first-observed map.
package store
