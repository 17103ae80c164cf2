/*
Package pipeline encodes the fixed stage order of the Hive pipeline.

The run order is implement → verify → test → deploy → done. Next walks
that sequence; done and anything unrecognized are terminal. BoardOrder
adds the pre-pipeline plan stage and exists only for dashboard grouping.
*/
package pipeline
