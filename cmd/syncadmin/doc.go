// Command syncadmin is an offline administration tool for the
// gallery-sync catalog. It operates directly on the SQLite database, so
// it works while the server is down; the recover command must only run
// while the server is down, since a live server would see its own
// running jobs marked failed.
package main
