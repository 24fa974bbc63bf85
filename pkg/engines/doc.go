/*
Package engines provides the template engines a view.Factory dispatches to.

[GoEngine] renders files with html/template and ships a small function
library (arithmetic, logic, list helpers and an "include" function that
resolves other views through the finder). [Pongo2Engine] adapts
github.com/flosch/pongo2 so Django/Jinja style templates can live next to
Go templates; its loader resolves include and extends names through the
same finder.

Both engines read template bodies through a [Source], so templates can come
from disk, an fs.FS or the SQLite store in package store.
*/
package engines
