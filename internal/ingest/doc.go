// Package ingest turns a corpus directory tree into partition contents.
//
// A corpus is laid out as company/department/employee directories plus one
// or more general directories shared by every company:
//
//	corpus/
//	  general/holidays.md
//	  acme/handbook.md
//	  acme/engineering/oncall.md
//	  acme/engineering/alice/onboarding.md
//
// Pipeline.Ingest reads the tree, tags every chunk with its hierarchy
// position and replaces whole partitions in the store. Watcher reruns
// ingestion when files change.
package ingest
