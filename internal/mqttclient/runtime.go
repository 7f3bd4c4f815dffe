package mqttclient

import (
	"sync"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// runtimes counts the facades using each engine. The first acquire calls
// Engine.Init and the last release calls Engine.Cleanup. Engines are used as
// map keys and must therefore be comparable (in practice, pointers).
var runtimes = struct {
	sync.Mutex
	refs map[mqtt.Engine]int
}{refs: make(map[mqtt.Engine]int)}

func acquireRuntime(engine mqtt.Engine) error {
	runtimes.Lock()
	defer runtimes.Unlock()

	if runtimes.refs[engine] == 0 {
		if err := engine.Init(); err != nil {
			return err
		}
	}
	runtimes.refs[engine]++
	return nil
}

func releaseRuntime(engine mqtt.Engine) {
	runtimes.Lock()
	defer runtimes.Unlock()

	switch n := runtimes.refs[engine]; n {
	case 0:
		return
	case 1:
		delete(runtimes.refs, engine)
		engine.Cleanup()
	default:
		runtimes.refs[engine] = n - 1
	}
}

// runtimeRefs reports the current reference count for engine.
func runtimeRefs(engine mqtt.Engine) int {
	runtimes.Lock()
	defer runtimes.Unlock()
	return runtimes.refs[engine]
}
