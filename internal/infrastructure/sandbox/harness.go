package sandbox

// pythonHarness runs the generated script with a headless backend and saves
// the current figure when the script did not write the artifact itself.
const pythonHarness = `import os
import runpy

import matplotlib
matplotlib.use("Agg")
import matplotlib.pyplot as plt

plt.show = lambda *args, **kwargs: None

runpy.run_path(os.environ["GRAPH_SCRIPT"], run_name="__main__")

artifact = os.environ["ARTIFACT_PATH"]
if not os.path.exists(artifact) and plt.get_fignums():
    plt.savefig(artifact)
`

const (
	RuntimePython = "python"
	RuntimeShell  = "shell"
)

// runtimeSpec describes how a runtime is launched.
type runtimeSpec struct {
	command   []string
	scriptExt string
	harness   string
}

var runtimes = map[string]runtimeSpec{
	RuntimePython: {command: []string{"python3", "-I"}, scriptExt: ".py", harness: pythonHarness},
	RuntimeShell:  {command: []string{"sh"}, scriptExt: ".sh"},
}
