package main

type bookmarkCmd struct {
	Advance bookmarkAdvanceCmd `cmd:"" help:"Advance bookmarks to a target commit"`
	List    bookmarkListCmd    `cmd:"" help:"List bookmarks"`
}
