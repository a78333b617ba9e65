/*
Package paths names the on-disk layout of a workspace project and the URL
layout the workspace backend serves it under.

Both sides of the wire use these helpers: the dev backend to place build
output and the session core tests to predict preview URLs.

	p := paths.Project{Root: "/srv/workspaces/1a2b3c4d"}
	p.WebDir()                 // /srv/workspaces/1a2b3c4d/build/web
	paths.PreviewIndex("1a2b") // /preview/1a2b/build/web/index.html
*/
package paths
