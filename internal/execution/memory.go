package execution

import (
	"os"
	"path/filepath"
	"strings"
)

// MemoryPluginModule is the pytest plugin loaded with -p when memory
// profiling is enabled
const MemoryPluginModule = "itp_memory"

// memoryPlugin records the traced peak and the biggest allocation sites of
// every test call with tracemalloc and writes them to $ITP_MEMORY_REPORT as
// {"tests": [{nodeid, total_memory, total_allocations, biggest_allocations}]}.
const memoryPlugin = `import json
import os
import tracemalloc

import pytest

_records = []


@pytest.hookimpl(hookwrapper=True)
def pytest_runtest_call(item):
    owned = not tracemalloc.is_tracing()
    if owned:
        tracemalloc.start()
    elif hasattr(tracemalloc, "reset_peak"):
        tracemalloc.reset_peak()
    try:
        yield
    finally:
        snapshot = tracemalloc.take_snapshot()
        _, peak = tracemalloc.get_traced_memory()
        if owned:
            tracemalloc.stop()
        stats = snapshot.statistics("lineno")
        _records.append({
            "nodeid": item.nodeid,
            "total_memory": peak,
            "total_allocations": sum(s.count for s in stats),
            "biggest_allocations": [
                {
                    "location": "%s:%d" % (s.traceback[0].filename, s.traceback[0].lineno),
                    "size": s.size,
                }
                for s in stats[:5]
            ],
        })


def pytest_sessionfinish(session):
    path = os.environ.get("ITP_MEMORY_REPORT")
    if not path:
        return
    with open(path, "w") as f:
        json.dump({"tests": _records}, f)
`

// installMemoryPlugin writes the plugin module into dir and returns the
// PYTHONPATH that makes it importable.
func installMemoryPlugin(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, MemoryPluginModule+".py")
	if err := os.WriteFile(path, []byte(memoryPlugin), 0o644); err != nil {
		return "", err
	}
	return prependPath(dir, os.Getenv("PYTHONPATH")), nil
}

func prependPath(dir, list string) string {
	if list == "" {
		return dir
	}
	return strings.Join([]string{dir, list}, string(os.PathListSeparator))
}
