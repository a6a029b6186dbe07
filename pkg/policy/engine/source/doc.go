// Package source loads condition rules from YAML files and keeps an engine
// in sync with them.
//
// A rule file holds a list of rules under a top-level "rules" key:
//
//	rules:
//	  - id: block-sqlmap
//	    action: BLOCK
//	    conditions:
//	      - field: headers.user-agent
//	        operator: contains
//	        value: sqlmap
//
// A path may name a single file or a directory. Directories are walked in
// lexical order and every .yaml or .yml file is loaded, so rule order across
// files is stable.
//
// Watcher reloads the rule set when files change. Reloads are debounced and
// an invalid rule set never replaces a valid one.
package source
