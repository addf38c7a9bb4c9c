package main

import "context"

func main() {
	ExecuteContext(context.Background())
}
