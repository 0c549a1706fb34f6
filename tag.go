package main

type tagCmd struct {
	List tagListCmd `cmd:"" help:"List tags"`
}
