package fixtures

// CitedStepAnswer 一份带步骤且全部引用的合成答案
const CitedStepAnswer = `Enable GATT notifications as follows.

Step 1: Discover the characteristic and its Client Characteristic Configuration Descriptor [#1].
Step 2: Write 0x0001 to the descriptor to enable notifications [#1].
Step 3: Handle incoming Handle Value Notifications; no confirmation is sent [#2].`

// UncitedStepAnswer 第二步缺少引用的答案
const UncitedStepAnswer = `Step 1: Discover the descriptor [#1].
Step 2: Write the enable value to it.`

// ExpansionResponse 查询扩展模型的典型输出
const ExpansionResponse = `1. How to enable GATT notifications on a BLE characteristic
2. "CCCD write to subscribe to notifications"
3. Handle Value Notification setup in ATT`
