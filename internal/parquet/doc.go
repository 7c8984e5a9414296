// Package parquet stores raw samples and statistic records as Parquet
// files for the archive sink and lenedactl export.
//
// Files are written whole: WriteFile creates a temporary file next to the
// target and renames it into place, so readers never see a partial file.
package parquet
