/*
Package database owns the on-disk cache layout of task classes.

Each task class gets one directory under the cache root:

	<cache_root>/<class_name>/
	  source.txt       opaque UTF-8 source version token
	  id_table/        persistent fingerprint -> instance id map
	  results/<id>/
	    args.json      the fingerprint bytes
	    result         opaque bytes of the last successful result
	    stdout         captured standard output
	    stderr         captured standard error
	    data/          task-owned scratch directory
	    deps/          one symlink per upstream instance directory,
	                   or the __NO_DEPENDENCIES__ sentinel

Result writes are atomic (temp file + rename); the result file's presence and
modification time are the source of truth for staleness decisions. Instance
directories are single-writer during execution; completed results may be read
concurrently.

Clearing an instance wipes its content (scratch data included) while keeping
its id; clearing a class empties the id table and removes results/ entirely.
*/
package database
