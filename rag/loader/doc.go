// Package loader 将已切分好的语料片段读入为 rag.Document，供向量库写入。
//
// 内置 JSON 与 JSONL 格式：每个对象是一个片段，正文取自 "content"（或 "text"），
// ID 取自 "id"，嵌套的 "metadata" 对象与顶层的 doc_id、title、source、
// chunk_index、topic、protocol_layer、section 字段合并为元数据。
//
//	registry := loader.NewLoaderRegistry()
//	docs, err := registry.Load(ctx, "/path/to/chunks.jsonl")
//
// 其他格式可按扩展名注册：
//
//	registry.Register(".ndjson", loader.NewJSONLoader(loader.JSONLoaderConfig{}))
package loader
