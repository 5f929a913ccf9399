// =============================================================================
// 📦 测试数据工厂 - 蓝牙知识库片段
// =============================================================================
// 提供预置的规范片段与文档，用于检索、合成与端到端测试
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/groundrag/rag"
)

// Chunk 构造一个带标准元数据的文档片段
func Chunk(docID, title, source, topic string, index int, content string) rag.Document {
	return rag.Document{
		ID:      fmt.Sprintf("%s#%d", docID, index),
		Content: content,
		Metadata: map[string]any{
			rag.MetaDocID:      docID,
			rag.MetaTitle:      title,
			rag.MetaSource:     source,
			rag.MetaTopic:      topic,
			rag.MetaChunkIndex: index,
		},
	}
}

// BluetoothCorpus 返回覆盖 GATT、SMP、L2CAP 与链路层的小型语料
func BluetoothCorpus() []rag.Document {
	return []rag.Document{
		Chunk("core-v5.4-gatt", "Core Spec Vol 3 Part G", "core_v5.4.pdf", "gatt", 0,
			"GATT notifications are sent by the server without acknowledgement. The client enables them by writing 0x0001 to the Client Characteristic Configuration Descriptor."),
		Chunk("core-v5.4-gatt", "Core Spec Vol 3 Part G", "core_v5.4.pdf", "gatt", 1,
			"GATT indications require a Handle Value Confirmation from the client before the server may send the next indication."),
		Chunk("core-v5.4-gatt", "Core Spec Vol 3 Part G", "core_v5.4.pdf", "gatt", 2,
			"The ATT MTU bounds the characteristic value length in a single notification to ATT_MTU minus 3 octets."),
		Chunk("core-v5.4-smp", "Core Spec Vol 3 Part H", "core_v5.4.pdf#smp", "security", 0,
			"LE Secure Connections pairing uses ECDH P-256 key exchange. Passkey entry authenticates the exchange over 20 rounds."),
		Chunk("core-v5.4-smp", "Core Spec Vol 3 Part H", "core_v5.4.pdf#smp", "security", 1,
			"Bonding stores the LTK and IRK so that encryption can be restarted on reconnection without pairing again."),
		Chunk("core-v5.4-l2cap", "Core Spec Vol 3 Part A", "core_v5.4.pdf#l2cap", "l2cap", 0,
			"L2CAP LE credit based flow control channels negotiate MTU and MPS. Each K-frame consumes one credit."),
		Chunk("core-v5.4-ll", "Core Spec Vol 6 Part B", "core_v5.4.pdf#ll", "link_layer", 0,
			"The connection interval ranges from 7.5 ms to 4 s in steps of 1.25 ms. Supervision timeout must exceed (1 + latency) * interval * 2."),
	}
}
