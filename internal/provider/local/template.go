package local

import (
	"fmt"
	"os"
	"path/filepath"
)

// Starter file sets for the built-in templates. Anything the template
// system doesn't know starts empty.
var templates = map[string]map[string]string{
	"node": {
		"package.json": `{
  "name": "sandbox",
  "version": "1.0.0",
  "main": "index.js",
  "scripts": {
    "start": "node index.js"
  }
}
`,
		"index.js": `console.log("Hello from nimbus");
`,
	},
	"python": {
		"main.py": `print("Hello from nimbus")
`,
		"requirements.txt": "",
	},
	"static": {
		"index.html": `<!DOCTYPE html>
<html>
  <head><title>Sandbox</title></head>
  <body><h1>Hello from nimbus</h1></body>
</html>
`,
	},
}

// materializeTemplate writes the starter files for a template into dir.
// Unknown template names leave the workspace empty.
func materializeTemplate(dir, template string) error {
	files, ok := templates[template]
	if !ok {
		return nil
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("materialize template %s: %w", template, err)
		}
	}
	return nil
}
