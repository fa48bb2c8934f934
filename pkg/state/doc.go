// Package state provides a store-backed preference provider for the User,
// Workspace and Folder scopes.
//
// A Store loads and saves one flat preference snapshot per Ref. The
// Provider keeps the loaded snapshots in memory, serves reads from them and
// writes every change back through the Store before reporting it to the
// preference service.
//
// Data flow:
//
//	Store -> Provider.Load -> prefs.Service (reads)
//	prefs.Service.Set -> Provider.SetPreference -> Store.Save -> change event
//
// Folder providers are configured with the workspace folder roots they
// serve. A resource URI is mapped to the longest root containing it, so
// nested roots resolve to the innermost folder.
//
// Deterministic keys:
//
//	Ref.Identifier() returns "user", "workspace" or "folder/<root>". Stores
//	that persist snapshots elsewhere should key them the same way.
package state
