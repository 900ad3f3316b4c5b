package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The serialized evidence set is identical across the
// perspective, fact-check, and synthesis calls of one turn, so caching it
// pays for itself after the second call.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
